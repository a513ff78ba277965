package main

import (
	"github.com/takeshi-yoshida/Naoru/cmd/naoru/commands"
)

func main() {
	commands.Execute()
}
