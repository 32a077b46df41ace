package main

import "github.com/peopledesk/starled/internal/cli"

func main() {
	cli.Execute()
}
