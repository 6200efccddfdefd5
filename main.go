package main

import "github.com/dayuer/botlink-go/cmd"

func main() {
	cmd.Execute()
}
