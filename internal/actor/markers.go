package actor

// InputBase is embedded in input structs to satisfy Input.
type InputBase struct{}

func (InputBase) isActorInput() {}

// EffectBase is embedded in effect structs to satisfy Effect.
type EffectBase struct{}

func (EffectBase) isActorEffect() {}
