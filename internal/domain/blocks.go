package domain

import (
	"encoding/json"
	"fmt"
)

// BlockType is the discriminator of a content block.
type BlockType string

const (
	BlockHeading          BlockType = "heading"
	BlockParagraph        BlockType = "paragraph"
	BlockCard             BlockType = "card"
	BlockUserCard         BlockType = "user_card"
	BlockButton           BlockType = "button"
	BlockDivider          BlockType = "divider"
	BlockNote             BlockType = "note"
	BlockFootnote         BlockType = "footnote"
	BlockConversationList BlockType = "conversation_list"
)

// Block is one typed unit of email content. The set of implementations is
// closed; renderers switch over the concrete types.
type Block interface {
	Type() BlockType
	isBlock()
}

// Heading is a large title line.
type Heading struct {
	Text string `json:"text"`
}

// Paragraph is a body text block. When HTML is set the text is trusted markup
// and is not escaped.
type Paragraph struct {
	Text        string `json:"text"`
	HTML        bool   `json:"html,omitempty"`
	Conditional bool   `json:"conditional,omitempty"`
}

// Card is a boxed panel with an optional title, body and label/value rows.
// Rows whose value resolves empty are omitted.
type Card struct {
	Title       string      `json:"title,omitempty"`
	Body        string      `json:"body,omitempty"`
	Fields      []CardField `json:"fields,omitempty"`
	Conditional bool        `json:"conditional,omitempty"`
}

// CardField is a single label/value row of a Card.
type CardField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// UserCard shows a person with an avatar. AvatarURLVar names the variable
// holding the avatar URL; when it resolves empty an initials glyph is drawn.
type UserCard struct {
	Name         string `json:"name"`
	Subtitle     string `json:"subtitle,omitempty"`
	AvatarURLVar string `json:"avatar_url_var,omitempty"`
	ProfileURL   string `json:"profile_url,omitempty"`
}

// Button is a call-to-action link.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Divider is a horizontal rule.
type Divider struct{}

// Note is a highlighted aside.
type Note struct {
	Text        string `json:"text"`
	Conditional bool   `json:"conditional,omitempty"`
}

// Footnote is small print below the main content.
type Footnote struct {
	Text string `json:"text"`
}

// ConversationList renders unread conversations. Variable names the template
// variable holding a JSON array of ConversationSummary values.
type ConversationList struct {
	Variable string `json:"variable"`
	LinkURL  string `json:"link_url,omitempty"`
}

// ConversationSummary is one element of a conversation_list variable.
type ConversationSummary struct {
	ConversationID  string `json:"conversation_id"`
	MessageCount    int    `json:"message_count"`
	SenderName      string `json:"sender_name"`
	SenderAvatarURL string `json:"sender_avatar_url,omitempty"`
}

// UnsupportedBlock stands in for a stored block whose type is not known to
// this build. It renders as nothing.
type UnsupportedBlock struct {
	Kind string `json:"-"`
}

func (Heading) Type() BlockType            { return BlockHeading }
func (Paragraph) Type() BlockType          { return BlockParagraph }
func (Card) Type() BlockType               { return BlockCard }
func (UserCard) Type() BlockType           { return BlockUserCard }
func (Button) Type() BlockType             { return BlockButton }
func (Divider) Type() BlockType            { return BlockDivider }
func (Note) Type() BlockType               { return BlockNote }
func (Footnote) Type() BlockType           { return BlockFootnote }
func (ConversationList) Type() BlockType   { return BlockConversationList }
func (u UnsupportedBlock) Type() BlockType { return BlockType(u.Kind) }

func (Heading) isBlock()          {}
func (Paragraph) isBlock()        {}
func (Card) isBlock()             {}
func (UserCard) isBlock()         {}
func (Button) isBlock()           {}
func (Divider) isBlock()          {}
func (Note) isBlock()             {}
func (Footnote) isBlock()         {}
func (ConversationList) isBlock() {}
func (UnsupportedBlock) isBlock() {}

// Blocks is an ordered list of content blocks stored as a JSON array of
// objects tagged with a "type" field.
type Blocks []Block

// UnmarshalJSON decodes a tagged JSON array into concrete block values.
func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("content blocks: %w", err)
	}
	out := make(Blocks, 0, len(raws))
	for i, raw := range raws {
		b, err := DecodeBlock(raw)
		if err != nil {
			return fmt.Errorf("content block %d: %w", i, err)
		}
		out = append(out, b)
	}
	*bs = out
	return nil
}

// MarshalJSON encodes the blocks with their "type" discriminator.
func (bs Blocks) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(bs))
	for _, b := range bs {
		raw, err := EncodeBlock(b)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// DecodeBlock decodes a single tagged block object.
func DecodeBlock(raw []byte) (Block, error) {
	var head struct {
		Type BlockType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case BlockHeading:
		return decodeAs[Heading](raw)
	case BlockParagraph:
		return decodeAs[Paragraph](raw)
	case BlockCard:
		return decodeAs[Card](raw)
	case BlockUserCard:
		return decodeAs[UserCard](raw)
	case BlockButton:
		return decodeAs[Button](raw)
	case BlockDivider:
		return Divider{}, nil
	case BlockNote:
		return decodeAs[Note](raw)
	case BlockFootnote:
		return decodeAs[Footnote](raw)
	case BlockConversationList:
		return decodeAs[ConversationList](raw)
	default:
		return UnsupportedBlock{Kind: string(head.Type)}, nil
	}
}

func decodeAs[T Block](raw []byte) (Block, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeBlock encodes a block as a JSON object whose first key is "type".
func EncodeBlock(b Block) ([]byte, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(b.Type())
	if err != nil {
		return nil, err
	}
	out := append([]byte(`{"type":`), typ...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
		return out, nil
	}
	return append(out, '}'), nil
}
