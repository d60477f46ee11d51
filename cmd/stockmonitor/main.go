package main

import "github.com/JakeFAU/stock-monitor/cmd"

func main() {
	cmd.Execute()
}
