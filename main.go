package main

import "github.com/nextlevelbuilder/wpbridge/cmd"

func main() {
	cmd.Execute()
}
