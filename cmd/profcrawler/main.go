// Command profcrawler crawls university staff directories for professor research interests.
package main

func main() {
	Execute()
}
