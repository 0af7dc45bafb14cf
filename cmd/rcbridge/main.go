package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/rcbridge/cmd/rcbridge/app"
)

func main() {
	app.NewApp().Run()
}
