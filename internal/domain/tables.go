package domain

var Tables = []interface{}{
	&WaSession{},
	&WaCredential{},
	&WaMsgLog{},
}
