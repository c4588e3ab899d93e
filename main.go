package main

import "tokasu/internal/app"

func main() {
	app.Main()
}
