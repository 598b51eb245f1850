package main

import (
	"github.com/KIKOU2016/openr/cmd"
)

func main() {
	cmd.Execute()
}
