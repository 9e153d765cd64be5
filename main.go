package main

import "github.com/cppla/bloghub/cmd"

func main() {
	cmd.Execute()
}
