package models

// ModelOption is one selectable completion model.
type ModelOption struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name" mapstructure:"name"`
}

func DefaultModelOptions() []ModelOption {
	return []ModelOption{
		{ID: "deepseek/deepseek-chat", Name: "DeepSeek Chat"},
		{ID: "openchat/openchat-3.5-0106", Name: "OpenChat 3.5"},
	}
}

// FindModelOption looks up a model by id.
func FindModelOption(options []ModelOption, id string) (ModelOption, bool) {
	for _, o := range options {
		if o.ID == id {
			return o, true
		}
	}
	return ModelOption{}, false
}
