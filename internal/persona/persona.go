package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema validates persona files before they are loaded. A rejected file
// never replaces the active persona.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["system_prompt", "banter_prompt", "reply_prompt"],
  "properties": {
    "system_prompt": {"type": "string", "minLength": 1},
    "banter_prompt": {"type": "string", "minLength": 1},
    "reply_prompt": {"type": "string", "minLength": 1},
    "greeting": {"type": "string"}
  },
  "additionalProperties": false
}`

// Persona holds the prompts that shape every generated message.
// BanterPrompt takes the subject name; ReplyPrompt takes the replier name
// and the reply text, in that order.
type Persona struct {
	SystemPrompt string `json:"system_prompt"`
	BanterPrompt string `json:"banter_prompt"`
	ReplyPrompt  string `json:"reply_prompt"`
	Greeting     string `json:"greeting,omitempty"`
}

// Default returns the built-in grumpy-old-British-man persona
func Default() Persona {
	return Persona{
		SystemPrompt: "You are a grumpy but lovable old British man who's full of witty insults, sarcasm, and dry humour. " +
			"You love a good cheeky roast and use British slang like 'muppet', 'numpty', 'bloke', 'dodgy', etc. " +
			"You're never cruel or hurtful, just snarky, clever, and endearingly rude. " +
			"Keep responses under 50 words. You're talking to a mate you've known for years.",
		BanterPrompt: "Roast my mate %s in a cheeky, British way. Be witty, sarcastic, and sound like an old British geezer.",
		ReplyPrompt:  "Respond to %s's message with a witty, sarcastic, cheeky roast. The message was: %s",
		Greeting:     "What's your business, traveler?",
	}
}

// Load reads and validates a persona file. A missing file is not an error;
// the built-in default is returned instead.
func Load(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Persona{}, fmt.Errorf("failed to read persona file: %w", err)
	}

	if err := validate(data); err != nil {
		return Persona{}, err
	}

	var p Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("failed to parse persona file: %w", err)
	}

	if p.Greeting == "" {
		p.Greeting = Default().Greeting
	}

	return p, nil
}

func validate(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(Schema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("persona schema validation error: %w", err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("invalid persona file: %s", strings.Join(problems, "; "))
	}

	return nil
}
