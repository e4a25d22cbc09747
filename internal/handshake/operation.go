// Package handshake implements the four-way GroupOperation tagged
// union and the Handshake envelope: signature over the
// pre-application transcript hash and confirmation MAC over transcript
// hash || signature, with the checks groupstate.Apply runs in the
// receiver-side validation order.
package handshake

import (
	"github.com/kindlyrobotics/ratchet/internal/ratchettree"
	"github.com/kindlyrobotics/ratchet/internal/welcome"
	"github.com/kindlyrobotics/ratchet/internal/wire"
)

// OperationTag is the 1-byte wire discriminant for a GroupOperation.
type OperationTag uint8

const (
	TagInit OperationTag = iota
	TagAdd
	TagUpdate
	TagRemove
)

func (t OperationTag) String() string {
	switch t {
	case TagInit:
		return "Init"
	case TagAdd:
		return "Add"
	case TagUpdate:
		return "Update"
	case TagRemove:
		return "Remove"
	default:
		return "Unknown"
	}
}

// RemoveOperation blanks a removed leaf and the internal nodes on its
// direct path, and re-keys the root.
type RemoveOperation struct {
	Removed uint32
	Path    *ratchettree.DirectPathMessage
}

// GroupOperation is the closed four-variant sum type, represented as
// a tagged struct rather than runtime-typed dispatch. Exactly one of
// Add, Update, Remove is set, matching Tag; Init carries no payload.
type GroupOperation struct {
	Tag    OperationTag
	Add    *welcome.UserInitKey
	Update *ratchettree.DirectPathMessage
	Remove *RemoveOperation
}

// Init constructs the inert GroupInit operation. Its semantics are
// unspecified upstream; the tag is carried on the wire and applied as
// a no-op roster/tree mutation (see groupstate.Apply).
func Init() GroupOperation {
	return GroupOperation{Tag: TagInit}
}

// Add constructs a GroupAdd operation appending a new member via the
// given UserInitKey.
func Add(initKey *welcome.UserInitKey) GroupOperation {
	return GroupOperation{Tag: TagAdd, Add: initKey}
}

// Update constructs a GroupUpdate operation re-keying the actor's own
// direct path.
func Update(path *ratchettree.DirectPathMessage) GroupOperation {
	return GroupOperation{Tag: TagUpdate, Update: path}
}

// Remove constructs a GroupRemove operation blanking removed's direct
// path.
func Remove(removed uint32, path *ratchettree.DirectPathMessage) GroupOperation {
	return GroupOperation{Tag: TagRemove, Remove: &RemoveOperation{Removed: removed, Path: path}}
}

// Validate checks the structural invariant each variant's payload
// must satisfy independent of any particular tree, and that the
// tagged fields agree with Tag.
func (op GroupOperation) Validate() error {
	if (op.Add != nil && op.Tag != TagAdd) || (op.Update != nil && op.Tag != TagUpdate) || (op.Remove != nil && op.Tag != TagRemove) {
		return protocolf("%s operation carries a payload for another variant", op.Tag)
	}
	switch op.Tag {
	case TagInit:
		return nil
	case TagAdd:
		if op.Add == nil {
			return protocolf("Add operation carries no UserInitKey")
		}
		return op.Add.Validate()
	case TagUpdate:
		if op.Update == nil {
			return protocolf("Update operation carries no DirectPathMessage")
		}
		return op.Update.Validate()
	case TagRemove:
		if op.Remove == nil || op.Remove.Path == nil {
			return protocolf("Remove operation carries no DirectPathMessage")
		}
		return op.Remove.Path.Validate()
	default:
		return protocolf("unknown GroupOperation tag %d", op.Tag)
	}
}

// MarshalTLS implements the custom encoding the wire library dispatches
// to for types it can't derive purely from struct tags: a 1-byte tag
// followed by the variant's own TLS encoding.
func (op GroupOperation) MarshalTLS() ([]byte, error) {
	var body []byte
	var err error
	switch op.Tag {
	case TagInit:
		body = nil
	case TagAdd:
		body, err = wire.Marshal(op.Add)
	case TagUpdate:
		body, err = wire.Marshal(op.Update)
	case TagRemove:
		body, err = wire.Marshal(op.Remove)
	default:
		return nil, malformedf("marshal: unknown GroupOperation tag %d", op.Tag)
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(op.Tag))
	out = append(out, body...)
	return out, nil
}

// UnmarshalTLS decodes a tag byte plus variant body, the inverse of
// MarshalTLS. Returns the number of bytes consumed.
func (op *GroupOperation) UnmarshalTLS(data []byte) (int, error) {
	if len(data) < 1 {
		return 0, malformedf("GroupOperation: empty input")
	}
	tag := OperationTag(data[0])
	rest := data[1:]
	switch tag {
	case TagInit:
		*op = GroupOperation{Tag: TagInit}
		return 1, nil
	case TagAdd:
		var init welcome.UserInitKey
		n, err := wire.UnmarshalPrefix(rest, &init)
		if err != nil {
			return 0, err
		}
		*op = GroupOperation{Tag: TagAdd, Add: &init}
		return 1 + n, nil
	case TagUpdate:
		var path ratchettree.DirectPathMessage
		n, err := wire.UnmarshalPrefix(rest, &path)
		if err != nil {
			return 0, err
		}
		*op = GroupOperation{Tag: TagUpdate, Update: &path}
		return 1 + n, nil
	case TagRemove:
		var rm RemoveOperation
		n, err := wire.UnmarshalPrefix(rest, &rm)
		if err != nil {
			return 0, err
		}
		*op = GroupOperation{Tag: TagRemove, Remove: &rm}
		return 1 + n, nil
	default:
		return 0, malformedf("GroupOperation: unrecognized tag %d", tag)
	}
}

