package main

import "chatrelay/internal/app"

func main() {
	app.Run()
}
