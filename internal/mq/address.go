package mq

import "strings"

// Address — адрес очереди или exchange.
//
// Строка вида "exchange/routing" делится на exchange и routing key,
// строка без "/" — имя очереди на exchange по умолчанию.
// Routing key может содержать несколько ключей через запятую (для receive).
type Address struct {
	Exchange   string
	RoutingKey string
}

// ParseAddress разбирает адрес. Делится только по первому "/".
func ParseAddress(s string) Address {
	if exchange, key, ok := strings.Cut(s, "/"); ok {
		return Address{Exchange: exchange, RoutingKey: key}
	}
	return Address{RoutingKey: s}
}

// HasExchange — адрес явно указывает exchange.
func (a Address) HasExchange() bool {
	return a.Exchange != ""
}

// Bindings возвращает ключи привязки (пустой срез — привязка без ключа).
func (a Address) Bindings() []string {
	if a.RoutingKey == "" {
		return nil
	}

	var keys []string
	for _, k := range strings.Split(a.RoutingKey, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// String собирает адрес обратно.
func (a Address) String() string {
	if a.HasExchange() {
		return a.Exchange + "/" + a.RoutingKey
	}
	return a.RoutingKey
}
