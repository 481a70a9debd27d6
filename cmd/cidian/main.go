// Command cidian manages a local Chinese vocabulary store.
package main

import "github.com/mesh-intelligence/cidian/internal/cli"

func main() {
	cli.Execute()
}
