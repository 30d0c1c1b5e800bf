package odm

import "mongokit/internal/plugins"

// Inherit делает модель дочерней: общая коллекция с From, поле __t различает типы.
type Inherit struct {
	From *Model
	// Discriminator — значение __t; по умолчанию имя модели.
	Discriminator string
}

// ModelOptions — включаемые плагины и наследование.
// Значение плагина передаётся ему как конфигурация; ложные значения плагин не включают.
type ModelOptions struct {
	TTL        any // true, строка длительности, миллисекунды, time.Duration или plugins.TTLOptions
	Timestamp  any // true или plugins.TimestampOptions
	Hide       any
	Deactivate any // true или plugins.DeactivateOptions

	// Plugins — опции пользовательских плагинов, зарегистрированных через Manager.Use.
	Plugins map[string]any

	Inherit *Inherit
}

func (o ModelOptions) pluginOptions() map[string]any {
	out := make(map[string]any, len(o.Plugins)+4)
	for k, v := range o.Plugins {
		out[k] = v
	}
	for k, v := range map[string]any{
		plugins.KeyTTL:        o.TTL,
		plugins.KeyTimestamp:  o.Timestamp,
		plugins.KeyHide:       o.Hide,
		plugins.KeyDeactivate: o.Deactivate,
	} {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
