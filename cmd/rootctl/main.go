// Command rootctl inspects root arena layouts and runs stress workloads
// against a moving toy collector.
package main

func main() {
	execute()
}
