package log

import "log/slog"

func WorkflowID[T ~string](id T) slog.Attr {
	return slog.String("workflow_id", string(id))
}

func NodeID[T ~string](id T) slog.Attr {
	return slog.String("node_id", string(id))
}

func UserID[T ~string](id T) slog.Attr {
	return slog.String("user_id", string(id))
}

func StepIndex(i int) slog.Attr {
	return slog.Int("step_index", i)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
