// Package main is the entry point for the stattest command line tool.
package main

func main() {
	Execute()
}
