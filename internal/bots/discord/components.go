package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/Formula-SAE/taskbot/internal/platform"
)

var buttonStyles = map[platform.ButtonStyle]discordgo.ButtonStyle{
	platform.ButtonPrimary:   discordgo.PrimaryButton,
	platform.ButtonSecondary: discordgo.SecondaryButton,
	platform.ButtonSuccess:   discordgo.SuccessButton,
	platform.ButtonDanger:    discordgo.DangerButton,
}

// fromRows never returns nil, an empty slice clears the components of a message.
func fromRows(rows []platform.ActionRow) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		var components []discordgo.MessageComponent
		if row.Select != nil {
			components = append(components, fromSelect(*row.Select))
		}
		for _, b := range row.Buttons {
			components = append(components, discordgo.Button{
				CustomID: b.CustomID,
				Label:    b.Label,
				Style:    buttonStyles[b.Style],
				Disabled: b.Disabled,
			})
		}
		if len(components) > 0 {
			out = append(out, discordgo.ActionsRow{Components: components})
		}
	}
	return out
}

func fromSelect(s platform.SelectMenu) discordgo.SelectMenu {
	options := make([]discordgo.SelectMenuOption, 0, len(s.Options))
	for _, o := range s.Options {
		options = append(options, discordgo.SelectMenuOption{
			Label:       o.Label,
			Value:       o.Value,
			Description: o.Description,
			Default:     o.Default,
		})
	}
	one := 1
	return discordgo.SelectMenu{
		MenuType:    discordgo.StringSelectMenu,
		CustomID:    s.CustomID,
		Placeholder: s.Placeholder,
		MinValues:   &one,
		MaxValues:   1,
		Options:     options,
		Disabled:    s.Disabled,
	}
}

// toRows reads components back. Components decoded from the gateway are
// pointers, the ones built by fromRows are values.
func toRows(components []discordgo.MessageComponent) []platform.ActionRow {
	var out []platform.ActionRow
	for _, c := range components {
		var children []discordgo.MessageComponent
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			children = row.Components
		case discordgo.ActionsRow:
			children = row.Components
		default:
			continue
		}

		var r platform.ActionRow
		for _, child := range children {
			switch v := child.(type) {
			case *discordgo.Button:
				r.Buttons = append(r.Buttons, toButton(*v))
			case discordgo.Button:
				r.Buttons = append(r.Buttons, toButton(v))
			case *discordgo.SelectMenu:
				r.Select = toSelect(*v)
			case discordgo.SelectMenu:
				r.Select = toSelect(v)
			}
		}
		out = append(out, r)
	}
	return out
}

func toButton(b discordgo.Button) platform.Button {
	out := platform.Button{CustomID: b.CustomID, Label: b.Label, Disabled: b.Disabled}
	for style, dg := range buttonStyles {
		if dg == b.Style {
			out.Style = style
		}
	}
	return out
}

func toSelect(s discordgo.SelectMenu) *platform.SelectMenu {
	out := &platform.SelectMenu{CustomID: s.CustomID, Placeholder: s.Placeholder, Disabled: s.Disabled}
	for _, o := range s.Options {
		out.Options = append(out.Options, platform.SelectOption{
			Label:       o.Label,
			Value:       o.Value,
			Description: o.Description,
			Default:     o.Default,
		})
	}
	return out
}

func fromModal(m platform.Modal) *discordgo.InteractionResponseData {
	rows := make([]discordgo.MessageComponent, 0, len(m.Inputs))
	for _, in := range m.Inputs {
		style := discordgo.TextInputShort
		if in.Paragraph {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    in.CustomID,
				Label:       in.Label,
				Style:       style,
				Placeholder: in.Placeholder,
				Required:    in.Required,
				MaxLength:   in.MaxLength,
			},
		}})
	}
	return &discordgo.InteractionResponseData{
		CustomID:   m.CustomID,
		Title:      m.Title,
		Components: rows,
	}
}

// modalFields collects the submitted text inputs keyed by custom id.
func modalFields(data discordgo.ModalSubmitInteractionData) map[string]string {
	fields := map[string]string{}
	for _, c := range data.Components {
		var children []discordgo.MessageComponent
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			children = row.Components
		case discordgo.ActionsRow:
			children = row.Components
		}
		for _, child := range children {
			switch v := child.(type) {
			case *discordgo.TextInput:
				fields[v.CustomID] = v.Value
			case discordgo.TextInput:
				fields[v.CustomID] = v.Value
			}
		}
	}
	return fields
}
