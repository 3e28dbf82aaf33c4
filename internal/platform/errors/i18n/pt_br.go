package i18n

var ptBRMessages = map[Code]string{
	CodeUnknown:               "Ocorreu um erro inesperado",
	CodeAuthRequestRejected:   "A solicitação de login foi recusada",
	CodeAuthRequestNotPending: "A solicitação de login {{.RequestID}} não está mais pendente",
	CodeAuthRequesterInvalid:  "O solicitante de autenticação não está configurado corretamente",
	CodeAuthFlowFailed:        "Falha ao entrar com {{.Provider}}",
	CodeScopeMalformed:        "O escopo solicitado é inválido",
	CodeProviderUnknown:       "Provedor de login desconhecido {{.Provider}}",
	CodeProviderStateInvalid:  "Não foi possível verificar a resposta de login",
	CodePopupClosed:           "A janela de login foi fechada antes da conclusão",
	CodePopupNotFound:         "Nenhuma janela de login aguarda esta resposta",
	CodePopupOriginMismatch:   "A resposta de login veio de uma origem inesperada",
	CodePopupOptionsInvalid:   "As opções da janela de login são inválidas",
	CodeNotFound:              "Registro não encontrado",
	CodePageTokenInvalid:      "O token de página é inválido",
	CodeOrderByInvalid:        "Não é possível ordenar os resultados por {{.OrderBy}}",
}
