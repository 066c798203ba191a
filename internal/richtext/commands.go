package richtext

import "fmt"

// Command - команда редактора, пришедшая от клиента
type Command struct {
	Name      string    `json:"name" binding:"required,oneof=bold italic heading link image"`
	Selection Selection `json:"selection"`
	URL       string    `json:"url"`
	Level     int       `json:"level"`
}

// Apply применяет команду к content и возвращает новый санитизированный HTML
func Apply(content string, cmd Command) (string, error) {
	e, err := NewEditor(content, nil)
	if err != nil {
		return "", err
	}
	e.Select(cmd.Selection)

	switch cmd.Name {
	case "bold":
		e.ToggleBold()
	case "italic":
		e.ToggleItalic()
	case "heading":
		level := cmd.Level
		if level == 0 {
			level = 2
		}
		e.ToggleHeading(level)
	case "link":
		err = e.SetLink(cmd.URL)
	case "image":
		err = e.InsertImage(cmd.URL)
	default:
		err = fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Name)
	}
	if err != nil {
		return "", err
	}
	return e.HTML(), nil
}
