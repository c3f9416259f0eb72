package main

import "github.com/serisow/craftvid/cmd"

func main() {
	cmd.Execute()
}
