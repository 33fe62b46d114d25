package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type ItemType string

const (
	ItemFile      ItemType = "file"
	ItemDirectory ItemType = "directory"
)

var (
	ErrInvalidName     = errors.New("invalid name")
	ErrUnknownItemType = errors.New("unknown file system item type")
)

// FileSystemItem is either a *File or a *Directory. The interface is sealed.
type FileSystemItem interface {
	ItemID() string
	ItemName() string
	Type() ItemType
	sealed()
}

type File struct {
	ID      string
	Name    string
	Content string
}

type Directory struct {
	ID       string
	Name     string
	Children []FileSystemItem
	IsOpen   bool
}

func NewFile(name, content string) (*File, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	return &File{ID: uuid.NewString(), Name: name, Content: content}, nil
}

func NewDirectory(name string, children ...FileSystemItem) (*Directory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if children == nil {
		children = []FileSystemItem{}
	}
	return &Directory{ID: uuid.NewString(), Name: name, Children: children}, nil
}

func (f *File) ItemID() string   { return f.ID }
func (f *File) ItemName() string { return f.Name }
func (f *File) Type() ItemType   { return ItemFile }
func (f *File) sealed()          {}

func (d *Directory) ItemID() string   { return d.ID }
func (d *Directory) ItemName() string { return d.Name }
func (d *Directory) Type() ItemType   { return ItemDirectory }
func (d *Directory) sealed()          {}

type fileJSON struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    ItemType `json:"type"`
	Content string   `json:"content"`
}

type directoryJSON struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Type     ItemType          `json:"type"`
	Children []json.RawMessage `json:"children"`
	IsOpen   bool              `json:"isOpen"`
}

func (f *File) MarshalJSON() ([]byte, error) {
	return json.Marshal(fileJSON{ID: f.ID, Name: f.Name, Type: ItemFile, Content: f.Content})
}

func (f *File) UnmarshalJSON(data []byte) error {
	var raw fileJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != "" && raw.Type != ItemFile {
		return fmt.Errorf("%w: %q is not a file", ErrUnknownItemType, raw.Type)
	}
	*f = File{ID: raw.ID, Name: raw.Name, Content: raw.Content}
	return nil
}

func (d *Directory) MarshalJSON() ([]byte, error) {
	children := make([]json.RawMessage, 0, len(d.Children))
	for _, child := range d.Children {
		b, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}
		children = append(children, b)
	}
	return json.Marshal(directoryJSON{
		ID:       d.ID,
		Name:     d.Name,
		Type:     ItemDirectory,
		Children: children,
		IsOpen:   d.IsOpen,
	})
}

func (d *Directory) UnmarshalJSON(data []byte) error {
	var raw directoryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != "" && raw.Type != ItemDirectory {
		return fmt.Errorf("%w: %q is not a directory", ErrUnknownItemType, raw.Type)
	}

	children := make([]FileSystemItem, 0, len(raw.Children))
	for _, c := range raw.Children {
		item, err := DecodeItem(c)
		if err != nil {
			return err
		}
		children = append(children, item)
	}

	*d = Directory{ID: raw.ID, Name: raw.Name, Children: children, IsOpen: raw.IsOpen}
	return nil
}

// DecodeItem decodes a node by its "type" tag.
func DecodeItem(data []byte) (FileSystemItem, error) {
	var head struct {
		Type ItemType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case ItemFile:
		f := &File{}
		if err := f.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return f, nil
	case ItemDirectory:
		d := &Directory{}
		if err := d.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemType, head.Type)
	}
}

func DecodeItems(raw []json.RawMessage) ([]FileSystemItem, error) {
	items := make([]FileSystemItem, 0, len(raw))
	for _, r := range raw {
		item, err := DecodeItem(r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Walk visits every node depth first. Returning false stops the walk.
func Walk(item FileSystemItem, fn func(item FileSystemItem, parent *Directory) bool) bool {
	return walk(item, nil, fn)
}

func walk(item FileSystemItem, parent *Directory, fn func(FileSystemItem, *Directory) bool) bool {
	if !fn(item, parent) {
		return false
	}

	switch it := item.(type) {
	case *File:
		return true
	case *Directory:
		for _, child := range it.Children {
			if !walk(child, it, fn) {
				return false
			}
		}
		return true
	default:
		panic(fmt.Sprintf("domain: unexpected file system item %T", item))
	}
}

// Find returns the node with the given id and its parent directory.
func Find(root FileSystemItem, id string) (FileSystemItem, *Directory) {
	var (
		found  FileSystemItem
		parent *Directory
	)
	Walk(root, func(item FileSystemItem, p *Directory) bool {
		if item.ItemID() == id {
			found, parent = item, p
			return false
		}
		return true
	})
	return found, parent
}

// Clone deep-copies a node so callers can read it without holding a lock.
func Clone(item FileSystemItem) FileSystemItem {
	switch it := item.(type) {
	case *File:
		cp := *it
		return &cp
	case *Directory:
		cp := &Directory{ID: it.ID, Name: it.Name, IsOpen: it.IsOpen, Children: make([]FileSystemItem, 0, len(it.Children))}
		for _, child := range it.Children {
			cp.Children = append(cp.Children, Clone(child))
		}
		return cp
	default:
		panic(fmt.Sprintf("domain: unexpected file system item %T", item))
	}
}
