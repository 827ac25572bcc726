package main

import "berichtsheft/internal/app"

func main() {
	app.Main()
}
