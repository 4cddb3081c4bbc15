// Command feedguard scans saved or live feed pages and hides sponsored,
// suggested and otherwise unwanted posts.
//
// Usage:
//
//	feedguard scan page.html https://example.com/feed
//	feedguard scan --input sources.csv --render out/
//	feedguard watch page.html
//	feedguard suggest page.html
package main

func main() {
	Execute()
}
