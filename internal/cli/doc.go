// Package cli реализует инструмент командной строки Conveyor.
//
// # Обзор
//
// CLI — клиентская утилита для producer API. Работает через HTTP,
// не импортирует внутренние пакеты сервера: ответы API описаны здесь же.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для producer API: публикация задач, health и ping.
// Заголовок Authorization передаётся как есть ("Bearer <jwt>",
// "Check <code>").
//
//	client := cli.NewClient("http://localhost:8080", "Bearer "+token)
//	task, err := client.PublishTask("reports", cli.PublishRequest{Task: "build"})
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
//
// ## Commands
//
//   - publish QUEUE --task --identity --data --field
//   - health
//   - ping
//
// Команды создаются фабричными функциями, принимающими clientFn и
// outputFn — замыкания для ленивого создания Client и Output после
// парсинга PersistentFlags.
package cli
