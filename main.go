package main

import "github.com/studex/apiserver/cmd"

func main() {
	cmd.Execute()
}
