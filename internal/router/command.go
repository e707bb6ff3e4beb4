package router

import (
	"strings"

	"github.com/Tyrowin/relaychat/internal/chaterr"
	"github.com/Tyrowin/relaychat/internal/group"
)

// Kind identifies a client command.
type Kind int

const (
	KindDirect Kind = iota + 1
	KindBroadcast
	KindCreateGroup
	KindJoinGroup
	KindGroupMessage
	KindLeaveGroup
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "msg"
	case KindBroadcast:
		return "broadcast"
	case KindCreateGroup:
		return "create_group"
	case KindJoinGroup:
		return "join_group"
	case KindGroupMessage:
		return "group_msg"
	case KindLeaveGroup:
		return "leave_group"
	default:
		return "unknown"
	}
}

// Command is one parsed client line. Target is the user or group name and
// Text the message body, when the command has them.
type Command struct {
	Kind   Kind
	Target string
	Text   string
}

const (
	prefixDirect       = "/msg "
	prefixBroadcast    = "/broadcast "
	prefixCreateGroup  = "/create_group "
	prefixJoinGroup    = "/join_group "
	prefixGroupMessage = "/group_msg "
	prefixLeaveGroup   = "/leave_group "
)

// ParseCommand parses a line of the text protocol. Keywords are
// case-sensitive. Unknown or malformed lines yield chaterr.ErrInvalidCommand;
// a well-formed group command with a bad name yields
// chaterr.ErrInvalidGroupName.
func ParseCommand(line string) (Command, error) {
	switch {
	case strings.HasPrefix(line, prefixDirect):
		target, text, ok := strings.Cut(strings.TrimPrefix(line, prefixDirect), " ")
		if !ok || target == "" {
			return Command{}, chaterr.ErrInvalidCommand
		}
		return Command{Kind: KindDirect, Target: target, Text: text}, nil

	case strings.HasPrefix(line, prefixBroadcast):
		return Command{Kind: KindBroadcast, Text: strings.TrimPrefix(line, prefixBroadcast)}, nil

	case strings.HasPrefix(line, prefixCreateGroup):
		return groupCommand(KindCreateGroup, strings.TrimPrefix(line, prefixCreateGroup))

	case strings.HasPrefix(line, prefixJoinGroup):
		return groupCommand(KindJoinGroup, strings.TrimPrefix(line, prefixJoinGroup))

	case strings.HasPrefix(line, prefixLeaveGroup):
		return groupCommand(KindLeaveGroup, strings.TrimPrefix(line, prefixLeaveGroup))

	case strings.HasPrefix(line, prefixGroupMessage):
		name, text, ok := strings.Cut(strings.TrimPrefix(line, prefixGroupMessage), " ")
		if !ok || name == "" {
			return Command{}, chaterr.ErrInvalidCommand
		}
		return Command{Kind: KindGroupMessage, Target: name, Text: text}, nil
	}

	return Command{}, chaterr.ErrInvalidCommand
}

func groupCommand(kind Kind, name string) (Command, error) {
	if err := group.ValidateName(name); err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Target: name}, nil
}
