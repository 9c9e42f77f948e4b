package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/rootkit/internal/format"
	"github.com/joshuapare/rootkit/root"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the pool layout of an arena",
		Long: `The info command validates a pool size and size class preset and shows
the resulting layout: header size, cell width and cells per pool for every class.

Example:
  rootctl info
  rootctl info --pool-size 65536 --classes wide --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo()
		},
	}
}

// ClassInfo describes one size class.
type ClassInfo struct {
	Class        int `json:"class"`
	Words        int `json:"words"`
	CellBytes    int `json:"cell_bytes"`
	CellsPerPool int `json:"cells_per_pool"`
}

// LayoutInfo describes an arena layout.
type LayoutInfo struct {
	PoolSize   int         `json:"pool_size"`
	HeaderSize int         `json:"header_size"`
	Preset     string      `json:"preset"`
	Classes    []ClassInfo `json:"classes"`
}

func runInfo() error {
	cls, err := sizeClasses(classes)
	if err != nil {
		return err
	}
	a, err := root.New(root.Config{PoolSize: poolSize, Classes: cls, HeapPages: true})
	if err != nil {
		return fmt.Errorf("invalid layout: %w", err)
	}
	defer a.Close()

	info := LayoutInfo{
		PoolSize:   a.PoolSize(),
		HeaderSize: format.PoolHeaderSize,
		Preset:     cls.Name,
	}
	for i, w := range a.ClassWords() {
		info.Classes = append(info.Classes, ClassInfo{
			Class:        i,
			Words:        w,
			CellBytes:    w * format.WordSize,
			CellsPerPool: format.CellsPerPool(a.PoolSize(), w),
		})
	}

	if jsonOut {
		return printJSON(info)
	}

	printInfo("\nArena Layout:\n")
	printInfo("  Pool size:   %d bytes\n", info.PoolSize)
	printInfo("  Header size: %d bytes\n", info.HeaderSize)
	printInfo("  Preset:      %s\n", info.Preset)
	printInfo("\nSize Classes:\n")
	for _, c := range info.Classes {
		printInfo("  class %d: %2d words (%3d bytes), %d cells per pool\n",
			c.Class, c.Words, c.CellBytes, c.CellsPerPool)
	}
	return nil
}
