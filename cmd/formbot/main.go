// Command formbot runs the Telegram application-form bot and inspects its
// stored sessions and applications.
package main

func main() {
	Execute()
}
