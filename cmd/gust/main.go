package main

import (
	"github.com/gustload/gust/internal/cli"
)

func main() {
	cli.Execute()
}
