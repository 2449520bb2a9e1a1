// Command flint runs the Gateway Core: the HTTP Surface and the channel
// webhook dispatcher, backed by the thread registry and the per-thread
// agent runtime pool.
package main

func main() {
	Execute()
}
