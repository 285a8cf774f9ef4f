package conversation

const (
	textRetryDecimal     = "Не удалось распознать число. Введите значение цифрами, например 1250,5"
	textRetryInteger     = "Введите число, например 150. Дробная часть будет отброшена."
	textRetryChoice      = "Пожалуйста, выберите вариант кнопкой ниже."
	textTooManyAttempts  = "Слишком много неверных попыток. Ввод сброшен, начните заново: отправьте файл или нажмите «У меня нет файла»."
	textNeedSpreadsheet  = "Нужен файл в формате .xlsx"
	textTooLarge         = "Файл слишком большой. Максимальный размер: %d МБ."
	textDownloadFailed   = "Не удалось загрузить файл: %v"
	textProcessingFile   = "Обрабатываю файл..."
	textProcessingManual = "Отправляю данные и жду ответа сервера..."
	textCancelled        = "Ввод отменён. Отправьте файл .xlsx или нажмите «У меня нет файла», чтобы начать заново."
	textNothingToCancel  = "Сейчас нечего отменять."
	textSessionReset     = "Сессия устарела и была сброшена. Начните заново."
)
