// Command client is an interactive terminal client for the relay's TCP line
// protocol.
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
)

func main() {
	addr := flag.StringP("addr", "a", "localhost:12345", "relay TCP address")
	plain := flag.Bool("no-color", false, "disable coloured output")
	flag.Parse()

	if *plain {
		color.Disable()
	}

	if err := run(*addr, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string, in io.Reader, out io.Writer) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		done <- printIncoming(conn, out)
	}()

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			if _, err := fmt.Fprintf(conn, "%s\n", scanner.Text()); err != nil {
				return
			}
		}
		// Stdin closed: half-close so the server sees EOF and logs us out.
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
	}()

	return <-done
}

func printIncoming(r io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasSuffix(line, ": ") && strings.HasPrefix(line, "Enter ") {
			fmt.Fprint(out, styleFor(line).Render(line))
			continue
		}
		fmt.Fprintln(out, styleFor(line).Render(line))
	}
	return scanner.Err()
}

// styleFor picks a colour from the shape of a server line.
func styleFor(line string) color.Style {
	switch {
	case strings.HasPrefix(line, "[Private] "):
		return color.New(color.FgMagenta, color.OpBold)
	case strings.HasPrefix(line, "[Group "):
		return color.New(color.FgCyan)
	case isRejection(line):
		return color.New(color.FgRed)
	case strings.HasPrefix(line, "Enter "),
		strings.HasPrefix(line, "Welcome "),
		strings.HasPrefix(line, "Active users: "),
		strings.HasSuffix(line, " has joined the chat."),
		strings.HasSuffix(line, " has left the chat."),
		strings.Contains(line, " group "):
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

var rejections = []string{
	"Authentication failed.",
	"User already logged in.",
	"User not found.",
	"Invalid command.",
	"Invalid group name.",
	"Group already exists.",
	"Group not found.",
	"Not in group or group doesn't exist.",
	"Not in group.",
}

func isRejection(line string) bool {
	return lo.Contains(rejections, line)
}
