// Command chatpasswd produces entries for the relay's credential file and
// lists the users a file defines.
//
//	chatpasswd [--scheme argon2id|bcrypt] [--file users.txt] <username>
//	chatpasswd --list --file users.txt
//
// The password is read from the first line of stdin. Without --file the
// entry is printed; with it the entry is appended to the file.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/Tyrowin/relaychat/internal/credentials"
	"github.com/olekukonko/tablewriter"
	flag "github.com/spf13/pflag"
)

func main() {
	scheme := flag.StringP("scheme", "s", credentials.SchemeArgon2id, "hash scheme: argon2id or bcrypt")
	file := flag.StringP("file", "f", "", "credential file to append to or list")
	list := flag.BoolP("list", "l", false, "list the users defined in --file")
	flag.Parse()

	var err error
	if *list {
		err = listUsers(*file, os.Stdout)
	} else {
		err = addUser(flag.Arg(0), *scheme, *file, os.Stdin, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatpasswd: %v\n", err)
		os.Exit(1)
	}
}

func addUser(username, scheme, file string, in io.Reader, out io.Writer) error {
	if username == "" || strings.ContainsAny(username, ": \t") {
		return errors.New("a username without spaces or colons is required")
	}

	password, err := readPassword(in)
	if err != nil {
		return err
	}

	entry, err := makeEntry(username, password, scheme)
	if err != nil {
		return err
	}

	if file == "" {
		_, err = fmt.Fprintln(out, entry)
		return err
	}

	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, entry); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "added %s to %s\n", username, file)
	return err
}

func readPassword(in io.Reader) (string, error) {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no password on stdin")
	}
	password := strings.TrimSuffix(scanner.Text(), "\r")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}

func makeEntry(username, password, scheme string) (string, error) {
	var (
		hash string
		err  error
	)
	switch scheme {
	case credentials.SchemeArgon2id:
		hash, err = credentials.HashArgon2id(password)
	case credentials.SchemeBcrypt:
		hash, err = credentials.HashBcrypt(password)
	default:
		return "", fmt.Errorf("unknown scheme %q", scheme)
	}
	if err != nil {
		return "", err
	}
	return username + ":" + hash, nil
}

func listUsers(file string, out io.Writer) error {
	if file == "" {
		return errors.New("--list needs --file")
	}

	store, err := credentials.LoadFile(file)
	if err != nil {
		return err
	}

	usernames := store.Usernames()
	slices.Sort(usernames)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Username", "Scheme"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, username := range usernames {
		secret, err := store.Lookup(username)
		if err != nil {
			continue
		}
		table.Append([]string{username, credentials.Scheme(secret)})
	}
	table.Render()
	return nil
}
