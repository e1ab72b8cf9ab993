package main

import "github.com/nextlevelbuilder/linecord/cmd"

func main() {
	cmd.Execute()
}
