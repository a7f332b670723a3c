package aggregate

// Error keys shown to chat users. Provider 4xx keys come from provider.ClientError.Key.
const (
	ErrorKeyInvalidRequest = "invalid_request"
	ErrorKeyFileTooLarge   = "file_too_large"
	ErrorKeyUnknown        = "unknown_error"
)

var errorMessages = map[string]map[string]string{
	"upstream_404": {
		"tr": "Üzgünüz, bu özellik şu an kullanılamıyor. Lütfen daha sonra tekrar dene.",
		"en": "Sorry, this feature isn't available right now. Please try again later.",
		"es": "Lo sentimos, esta función no está disponible ahora. Por favor, inténtalo más tarde.",
		"fr": "Désolé, cette fonctionnalité n'est pas disponible pour le moment. Réessayez plus tard.",
		"pt": "Desculpe, este recurso não está disponível agora. Tente novamente mais tarde.",
		"ru": "Извините, эта функция сейчас недоступна. Пожалуйста, попробуйте позже.",
	},
	"upstream_401": {
		"tr": "Şu an isteğin tamamlanamadı. Lütfen biraz sonra tekrar dene.",
		"en": "We couldn't complete this request. Please try again soon.",
		"es": "No pudimos completar esta solicitud. Inténtalo de nuevo en breve.",
		"fr": "Impossible de terminer la requête. Réessayez dans un instant.",
		"pt": "Não conseguimos concluir este pedido. Tente novamente em breve.",
		"ru": "Не удалось выполнить запрос. Попробуйте чуть позже.",
	},
	"upstream_429": {
		"tr": "Çok fazla istek gönderildi. Lütfen biraz bekleyip tekrar deneyin.",
		"en": "Too many requests. Please wait a moment and try again.",
		"es": "Demasiadas solicitudes. Por favor espera un momento y vuelve a intentarlo.",
		"fr": "Trop de requêtes. Veuillez patienter un instant puis réessayer.",
		"pt": "Muitas solicitações. Aguarde um momento e tente novamente.",
		"ru": "Слишком много запросов. Подождите немного и попробуйте снова.",
	},
	"upstream_timeout": {
		"tr": "Bağlantı çok yavaş. Lütfen internetini kontrol edip tekrar dene.",
		"en": "The connection is slow. Please check your internet and try again.",
		"es": "La conexión está lenta. Revisa tu internet y vuelve a intentarlo.",
		"fr": "La connexion est lente. Vérifiez votre internet et réessayez.",
		"pt": "A conexão está lenta. Verifique sua internet e tente novamente.",
		"ru": "Соединение медленное. Проверьте интернет и попробуйте снова.",
	},
	ErrorKeyInvalidRequest: {
		"tr": "Gönderilen istek geçersiz. Lütfen alanları kontrol edin.",
		"en": "The request is invalid. Please check the fields.",
		"es": "La solicitud es inválida. Por favor revisa los campos.",
		"fr": "La requête est invalide. Veuillez vérifier les champs.",
		"pt": "A solicitação é inválida. Verifique os campos.",
		"ru": "Некорректный запрос. Пожалуйста, проверьте поля.",
	},
	ErrorKeyFileTooLarge: {
		"tr": "Dosya boyutu sınırı aşıldı.",
		"en": "File size limit exceeded.",
		"es": "Se excedió el límite de tamaño de archivo.",
		"fr": "La taille du fichier dépasse la limite.",
		"pt": "O limite de tamanho de arquivo foi excedido.",
		"ru": "Превышен предел размера файла.",
	},
	ErrorKeyUnknown: {
		"tr": "Beklenmeyen bir hata oluştu. Lütfen tekrar deneyin.",
		"en": "An unexpected error occurred. Please try again.",
		"es": "Ocurrió un error inesperado. Por favor, inténtalo de nuevo.",
		"fr": "Une erreur inattendue s'est produite. Veuillez réessayer.",
		"pt": "Ocorreu um erro inesperado. Por favor, tente novamente.",
		"ru": "Произошла непредвиденная ошибка. Пожалуйста, попробуйте снова.",
	},
}

// ErrorMessage returns the localized user-facing text for an error key. Unknown keys get the
// generic message.
func ErrorMessage(key, language string) string {
	msgs, ok := errorMessages[key]
	if !ok {
		msgs = errorMessages[ErrorKeyUnknown]
	}
	if m, ok := msgs[NormalizeLanguage(language)]; ok {
		return m
	}
	return msgs["en"]
}
