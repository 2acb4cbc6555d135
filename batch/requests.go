package batch

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pure-golang/mailbatch/mail"
	"gopkg.in/yaml.v3"
)

// ErrEmptyInput is returned when the message list is blank.
var ErrEmptyInput = errors.New("empty message list")

type requestFields struct {
	To      string `yaml:"to"`
	Subject string `yaml:"subject"`
	Text    string `yaml:"text"`
	HTML    string `yaml:"html"`
	ReplyTo string `yaml:"reply_to"`
}

// ParseRequests decodes a message list given as YAML or JSON. Every item is
// either a tuple
//
//	[to, subject, text, html]           or
//	[to, subject, text, html, reply_to]
//
// or a mapping with the keys to, subject, text, html and reply_to.
// The input is only ever decoded as data.
func ParseRequests(data []byte) ([]mail.Request, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, ErrEmptyInput
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(err, "failed to parse message list")
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 {
		return nil, errors.New("message list must be a single document")
	}

	list := root.Content[0]
	if list.Kind != yaml.SequenceNode {
		return nil, errors.New("message list must be a list")
	}

	requests := make([]mail.Request, 0, len(list.Content))
	for i, item := range list.Content {
		req, err := parseRequest(item)
		if err != nil {
			return nil, errors.Wrapf(err, "message %d (line %d)", i+1, item.Line)
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func parseRequest(item *yaml.Node) (mail.Request, error) {
	switch item.Kind {
	case yaml.SequenceNode:
		for _, field := range item.Content {
			if field.Kind != yaml.ScalarNode {
				return mail.Request{}, errors.New("tuple fields must be strings")
			}
		}
		var fields []string
		if err := item.Decode(&fields); err != nil {
			return mail.Request{}, errors.Wrap(err, "failed to decode tuple")
		}
		if len(fields) != 4 && len(fields) != 5 {
			return mail.Request{}, errors.Errorf("tuple needs 4 or 5 fields, got %d", len(fields))
		}
		req := mail.Request{
			To:      fields[0],
			Subject: fields[1],
			Text:    fields[2],
			HTML:    fields[3],
		}
		if len(fields) == 5 {
			req.ReplyTo = fields[4]
		}
		return req, nil

	case yaml.MappingNode:
		var f requestFields
		if err := item.Decode(&f); err != nil {
			return mail.Request{}, errors.Wrap(err, "failed to decode mapping")
		}
		if f.To == "" {
			return mail.Request{}, errors.New("missing to")
		}
		return mail.Request(f), nil

	default:
		return mail.Request{}, errors.New("item must be a tuple or a mapping")
	}
}
