// Command tickerdesk generates financial analysis reports with a bounded
// team of research agents.
package main

func main() {
	Execute()
}
