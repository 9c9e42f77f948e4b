//go:build !rootdebug

package root

import "github.com/joshuapare/rootkit/root/pool"

const debugChecks = false

type handleDebug struct{}

func debugHandle(*pool.Pool) handleDebug { return handleDebug{} }

func (handleDebug) deleted(*pool.Value) bool { return false }
