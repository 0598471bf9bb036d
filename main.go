package main

import "github.com/iksnae/cognitus-chat/cmd"

func main() {
	cmd.Execute()
}
