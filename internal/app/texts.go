package app

const (
	textGreeting = "Мы разработали сервис, который помогает юридическим лицам быстро и точно подобрать " +
		"оптимальный тариф на электроэнергию, основываясь на данных потребления." +
		"\n\n📂 Отправь Excel-файл с показаниями счетчиков (формат .xlsx), и мы:" +
		"\n— автоматически проанализируем потребление по часам," +
		"\n— определим пиковые нагрузки," +
		"\n— и предложим наиболее выгодную тарифную категорию." +
		"\n\n📲 Если у вас нет файла, введите данные вручную или проверьте сервис на тестовом файле." +
		"\n\n🔍 Наш сервис работает быстро и понятно — без сложных расчетов, графиков и бюрократии. " +
		"Поможем сократить принятие решений с нескольких дней до пары минут."

	textHelp = "Отправьте Excel-файл (.xlsx) с показаниями счетчиков, чтобы получить расчёт." +
		"\nНет файла? Нажмите «У меня нет файла» под приветствием (/start) и введите данные вручную." +
		"\n\n/start — приветствие\n/cancel — отменить ввод\n/help — эта справка"

	textUnknown      = "Не понимаю сообщение. Отправьте файл .xlsx или нажмите /start."
	textStaleButton  = "Кнопка устарела"
	textRateLimited  = "Слишком часто. Подождите немного."
	textExampleOffer = "Хочешь протестировать наш сервис на примере тестового Excel-файла?"
	textExampleSent  = "Вот пример тестового файла, который я сейчас отправлю на сервер"
	textExampleFail  = "Ошибка при отправке файла пользователю: %v"
	textStats        = "Пользователей: %d\nАктивных сессий: %d"
	textAdminFailure = "Ошибка расчёта\nuser_id: %d\nflow: %s\nerr: %v"

	btnManual       = "У меня нет файла"
	btnExample      = "Попробовать на тестовом файле"
	btnExampleStart = "Да!"

	exampleFileName = "test_file.xlsx"
)

// Callback keys.
const (
	cbManual       = "manual_input"
	cbExample      = "example_file"
	cbExampleStart = "send_test_file"
	cbCancel       = "cancel"
)
