package jobxredis

import "github.com/Abraxas-365/profilejobs/pkg/errx"

var redisErrors = errx.NewRegistry("JOBX_REDIS")

var (
	ErrConnection = redisErrors.Register("CONNECTION", errx.TypeExternal, "Redis unreachable")
	ErrAuth       = redisErrors.Register("AUTH", errx.TypeExternal, "Redis rejected the credentials")
	ErrGaveUp     = redisErrors.Register("GAVE_UP", errx.TypeExternal, "Redis reconnect attempts exhausted")
	ErrEnqueue    = redisErrors.Register("ENQUEUE", errx.TypeExternal, "Redis enqueue failed")
	ErrClaim      = redisErrors.Register("CLAIM", errx.TypeExternal, "Redis claim failed")
	ErrGetJob     = redisErrors.Register("GET_JOB", errx.TypeExternal, "Redis get job failed")
	ErrHeartbeat  = redisErrors.Register("HEARTBEAT", errx.TypeExternal, "Redis heartbeat failed")
	ErrComplete   = redisErrors.Register("COMPLETE", errx.TypeExternal, "Redis complete failed")
	ErrFail       = redisErrors.Register("FAIL", errx.TypeExternal, "Redis fail failed")
	ErrPromote    = redisErrors.Register("PROMOTE", errx.TypeExternal, "Redis promote failed")
	ErrStalled    = redisErrors.Register("STALLED", errx.TypeExternal, "Redis stalled job recovery failed")
	ErrStats      = redisErrors.Register("STATS", errx.TypeExternal, "Redis stats failed")
	ErrMarshal    = redisErrors.Register("MARSHAL", errx.TypeInternal, "Failed to marshal job data")
	ErrUnmarshal  = redisErrors.Register("UNMARSHAL", errx.TypeInternal, "Failed to unmarshal job data")
)
