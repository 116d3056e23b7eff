package main

import "github.com/qrave1/RoomScribe/cmd"

func main() {
	cmd.Execute()
}
