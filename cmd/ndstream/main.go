package main

import "github.com/anggasct/ndstream/internal/cli"

func main() {
	cli.Main()
}
