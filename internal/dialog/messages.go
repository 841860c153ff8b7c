package dialog

const (
	msgStart      = "Щоб розпочати роботу бота привітайтесь з ним :=)"
	msgStartHelp  = "Для ознайомлення з функціоналом напишіть /help"
	msgHelpAbout  = "Даний бот був розроблений для розпізнавання голосових повідомлень."
	msgHelpUsage  = "Для того, щоб скористатися функціоналом \n" +
		"=> Вам потрібно привітатись з ботом українською, англійською чи російською мовою \n" +
		"=> Вибрати мову для розпізнавання.\n" +
		"=> Для зміни мови розпізнавання потрібно повторно привітатись.\n" +
		"=> Для пошуку збережених записів надішліть /search."

	msgGreeting       = "Доброго часу доби, вас вітає бот для перетворення аудіозапису на текст. Ваш унікальний ідентифікатор чату => %s ~ %d."
	msgChooseLanguage = "Виберіть мову, яку буде містити аудіозапис"
	msgLanguageSet    = "Мова розпізнавання - %s."
	msgRecordPrompt   = "Запишіть голосове повідомлення або надішліть файл формату wav."

	msgRecognitionFailed = "На етапі розпізнавання аудіозапису сталася помилка - сповістіть про це розробників"
	msgNotRecognized     = "Текст не вдалося розпізнати, спробуйте записати аудіозапис у менш шумному місці."
	msgSavePrompt        = "Зберегти отримані дані до Бази Знань?"
	msgDescribePrompt    = "Напишіть опис до файлу або його id"
	msgSaved             = "✅ Інформація успішно збережена до Бази Знань."
	msgSaveFailed        = "❌ На етапі збереження даних сталася помилка - сповістіть про це розробників"

	msgSearchIntro   = "Надішліть часовий проміжок за який потрібно знайти записи. Слід зауважити час збережений за Coordinated Universal Time (UTC). Приклад формату:"
	msgSearchExample = "2021-12-18T12:41:05.488441Z 2021-12-18T12:41:05.488441Z"
	msgSearchEnter   = "Введіть часовий проміжок (або chat id):"
	msgSearchBadFmt  = "Неправильний формат часу. Слід зауважити час збережений за Coordinated Universal Time (UTC). Приклад формату:"
	msgSearchRetry   = "Введіть часовий проміжок ще раз:"
	msgSearchScope   = "Виконувати пошук серед користувачів, які надали анотацію до аудіозапису?"
	msgFound         = "Знайдено записів: %d"
	msgStoreDown     = "Помилка з'єднання з сервером. Повідомте про це розробників."

	msgAdminCaption  = "username ~ %s \nchat_id ~ %d"
	msgRecordCaption = "description ~ %s \ntime ~ %s \nuser_id ~ %d \nlanguage ~ %s \ntext ~ %s"

	labelYes = "Так"
	labelNo  = "Ні"

	// maxMessageLength is the transport's limit for a text message
	maxMessageLength = 4096
)

var affirmatives = []string{"так", "yes", "да"}
