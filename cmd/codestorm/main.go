package main

import "github.com/josedcape/codestorm-preeliminar/internal/cli"

func main() {
	cli.Execute()
}
