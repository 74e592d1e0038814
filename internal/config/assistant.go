package config

import (
	"fmt"
	"strings"
	"text/template"
)

const (
	DefaultVoice    = "Zephyr"
	DefaultLanguage = "en"
)

// Voice is a prebuilt speaker offered by the live API.
type Voice struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Gender      string `yaml:"gender" json:"gender"`
}

// Language is a response language the assistant can translate into.
type Language struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// DefaultVoices is the built-in voice catalog.
var DefaultVoices = []Voice{
	{Name: "Puck", Description: "Playful", Gender: "male"},
	{Name: "Charon", Description: "Deep", Gender: "male"},
	{Name: "Kore", Description: "Soft", Gender: "female"},
	{Name: "Fenrir", Description: "Strong", Gender: "male"},
	{Name: "Zephyr", Description: "Bright", Gender: "female"},
}

// DefaultLanguages is the built-in language catalog.
var DefaultLanguages = []Language{
	{Code: "en", Name: "English"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "hi", Name: "Hindi"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ko", Name: "Korean"},
	{Code: "zh", Name: "Chinese"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "ar", Name: "Arabic"},
}

// DefaultPrompt is the system instruction template. It sees .Voice (a
// Voice), .Language (a Language) and .Translate.
const DefaultPrompt = `You are Gemini, a helpful voice assistant.
You respond naturally and concisely.
Current user preference: {{if .Translate}}TRANSLATE all responses to {{.Language.Name}}.{{else}}Respond in English.{{end}}
Your persona is {{.Voice.Name}}.
Try to respond with personality.
Treat all voice input as a conversation.`

// AssistantConfig holds the initial selections and the catalogs they are
// validated against.
type AssistantConfig struct {
	Voice     string     `yaml:"voice"`
	Language  string     `yaml:"language"`
	Captions  bool       `yaml:"captions"`
	Prompt    string     `yaml:"prompt"`
	Voices    []Voice    `yaml:"voices"`
	Languages []Language `yaml:"languages"`
}

// Validate validates the selections and the prompt template
func (a *AssistantConfig) Validate() error {
	if _, ok := a.FindVoice(a.Voice); !ok {
		return fmt.Errorf("voice %q is not in the catalog", a.Voice)
	}
	if _, ok := a.FindLanguage(a.Language); !ok {
		return fmt.Errorf("language %q is not in the catalog", a.Language)
	}
	if _, err := a.template(); err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	return nil
}

// VoiceCatalog returns the configured voices or the built-in ones.
func (a *AssistantConfig) VoiceCatalog() []Voice {
	if len(a.Voices) > 0 {
		return a.Voices
	}
	return DefaultVoices
}

// LanguageCatalog returns the configured languages or the built-in ones.
func (a *AssistantConfig) LanguageCatalog() []Language {
	if len(a.Languages) > 0 {
		return a.Languages
	}
	return DefaultLanguages
}

// FindVoice looks a voice up by name, ignoring case.
func (a *AssistantConfig) FindVoice(name string) (Voice, bool) {
	for _, v := range a.VoiceCatalog() {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return Voice{}, false
}

// FindLanguage looks a language up by code, ignoring case.
func (a *AssistantConfig) FindLanguage(code string) (Language, bool) {
	for _, l := range a.LanguageCatalog() {
		if strings.EqualFold(l.Code, code) {
			return l, true
		}
	}
	return Language{}, false
}

func (a *AssistantConfig) template() (*template.Template, error) {
	text := a.Prompt
	if text == "" {
		text = DefaultPrompt
	}
	return template.New("prompt").Option("missingkey=error").Parse(text)
}

// SystemPrompt renders the system instruction for a voice and language.
func (a *AssistantConfig) SystemPrompt(voice, language string) (string, error) {
	v, ok := a.FindVoice(voice)
	if !ok {
		return "", fmt.Errorf("unknown voice %q", voice)
	}
	l, ok := a.FindLanguage(language)
	if !ok {
		return "", fmt.Errorf("unknown language %q", language)
	}

	tmpl, err := a.template()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	err = tmpl.Execute(&b, struct {
		Voice     Voice
		Language  Language
		Translate bool
	}{Voice: v, Language: l, Translate: l.Code != "en"})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}
