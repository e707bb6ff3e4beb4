package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Tyrowin/relaychat/internal/credentials"
	"github.com/stretchr/testify/require"
)

func TestAddUser_PrintsVerifiableEntry(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer

	err := addUser("alice", credentials.SchemeArgon2id, "", strings.NewReader("s3cret\n"), &out)
	req.NoError(err)

	store, err := credentials.Load(&out)
	req.NoError(err)
	req.NoError(store.Verify("alice", "s3cret"))
}

func TestAddUser_AppendsToFile(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "users.txt")
	req.NoError(os.WriteFile(path, []byte("bob:plain\n"), 0o600))

	var out bytes.Buffer
	req.NoError(addUser("carol", credentials.SchemeBcrypt, path, strings.NewReader("pw\n"), &out))
	req.Contains(out.String(), "added carol")

	store, err := credentials.LoadFile(path)
	req.NoError(err)
	req.NoError(store.Verify("bob", "plain"))
	req.NoError(store.Verify("carol", "pw"))
}

func TestAddUser_Rejects(t *testing.T) {
	var out bytes.Buffer

	require.Error(t, addUser("", credentials.SchemeArgon2id, "", strings.NewReader("pw\n"), &out))
	require.Error(t, addUser("a:b", credentials.SchemeArgon2id, "", strings.NewReader("pw\n"), &out))
	require.Error(t, addUser("alice", credentials.SchemeArgon2id, "", strings.NewReader(""), &out))
	require.Error(t, addUser("alice", "md5", "", strings.NewReader("pw\n"), &out))
	require.Empty(t, out.String())
}

func TestListUsers(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "users.txt")
	hash, err := credentials.HashBcrypt("pw")
	req.NoError(err)
	req.NoError(os.WriteFile(path, []byte("zed:plain\nalice:"+hash+"\n"), 0o600))

	var out bytes.Buffer
	req.NoError(listUsers(path, &out))

	table := out.String()
	req.Contains(table, "USERNAME")
	req.Contains(table, "bcrypt")
	req.Less(strings.Index(table, "alice"), strings.Index(table, "zed"))
	req.NotContains(table, hash)

	req.Error(listUsers("", &out))
}
